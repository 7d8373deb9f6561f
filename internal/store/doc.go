// Package store defines the persistence interfaces and shared errors used
// by the service layer. Concrete implementations live under
// internal/platform (e.g. the PostgreSQL task store).
package store
