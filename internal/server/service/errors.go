package service

import (
	"errors"

	"github.com/fjod/go_cart/cartsync/internal/server/catalog"
	"github.com/fjod/go_cart/cartsync/internal/server/repository"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be between 1 and 99")
	ErrInvalidProductID = errors.New("product id must be positive")
	ErrProductNotFound  = catalog.ErrProductNotFound
	ErrItemNotFound     = repository.ErrItemNotFound
)
