package web

import (
	"encoding/json"
	"net/http"
)

// healthBody is the body of the health and readiness endpoints.
type healthBody struct {
	Status        string `json:"status"`
	MQTTConnected *bool  `json:"mqtt_connected,omitempty"`
	Registrations int    `json:"registrations,omitempty"`
}

func writeHealth(w http.ResponseWriter, code int, p healthBody) {
	data, _ := json.Marshal(p)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}
