package persistence

import "errors"

var ErrNoInflux = errors.New("influx not configured")
