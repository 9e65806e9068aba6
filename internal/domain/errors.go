package domain

import "errors"

var ErrInvalidTransferID = errors.New("invalid transfer id")
