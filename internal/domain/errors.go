package domain

import "errors"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrStoreClosed     = errors.New("vote store closed")
)
