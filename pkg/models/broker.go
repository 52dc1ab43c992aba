package models

import "time"

// ServiceArea is one state/city pair a broker serves.
type ServiceArea struct {
	State string `json:"state" bson:"state"`
	City  string `json:"city" bson:"city"`
}

// Broker is a tenant of the platform. Account management lives outside
// this service; the routing engine only reads brokers.
type Broker struct {
	ID           string        `json:"id" bson:"_id,omitempty"`
	Name         string        `json:"name" bson:"name"`
	Phone        string        `json:"phone" bson:"phone"`
	Email        string        `json:"email,omitempty" bson:"email,omitempty"`
	ServiceAreas []ServiceArea `json:"service_areas" bson:"serviceAreas"`
	Active       bool          `json:"active" bson:"active"`
	CreatedAt    time.Time     `json:"created_at" bson:"createdAt,omitempty"`
}

// RoutingCursor is the durable round-robin pointer for one city. The
// document id is the city key ("<state>-<city>"); Position only ever
// increases, selection applies it modulo the eligible-broker count.
type RoutingCursor struct {
	CityKey  string `json:"city_key" bson:"_id"`
	Position int64  `json:"position" bson:"position"`
}

// CityKey builds the rotation-cursor document id for a state/city pair.
func CityKey(state, city string) string {
	return state + "-" + city
}
