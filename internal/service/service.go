package service

import (
	"github.com/smartcity/rtiis/internal/domain"
)

// Store is re-exported from domain for convenience
type Store = domain.Store
