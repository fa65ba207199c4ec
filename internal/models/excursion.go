package models

import "time"

// ExcursionStatus represents whether an excursion is on sale
type ExcursionStatus string

const (
	ExcursionStatusActive   ExcursionStatus = "active"
	ExcursionStatusInactive ExcursionStatus = "inactive"
)

// Excursion is the sellable product that windows open capacity for
type Excursion struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Status    ExcursionStatus `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Region is a geographic sales region
type Region struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// PickupPoint is a place guests are collected from
type PickupPoint struct {
	ID       string `json:"id" db:"id"`
	RegionID string `json:"region_id" db:"region_id"`
	Name     string `json:"name" db:"name"`
}
