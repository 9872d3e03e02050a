// Package repository defines the persistence contracts the login flow
// depends on. Implementations live in internal/store (memory, pg).
package repository
