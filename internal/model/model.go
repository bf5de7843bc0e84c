package model

import "github.com/LeonardoBeccarini/gardenbot/internal/model/messages"

// SensorData is the reading record shared by the event and history services.
type SensorData = messages.SensorData
