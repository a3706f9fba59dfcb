package common

import "errors"

// Rejections. None of these leave the book modified.
var (
	ErrDuplicateOrder  = errors.New("duplicate order")
	ErrOrderNotFound   = errors.New("order not found")
	ErrInvalidModify   = errors.New("invalid modify")
	ErrLevelNotFound   = errors.New("price level not found")
	ErrInvalidOrder    = errors.New("invalid order")
	ErrTraversalActive = errors.New("book traversal in progress")
	ErrBookBusy        = errors.New("book operation in progress")
)
