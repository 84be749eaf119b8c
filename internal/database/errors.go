package database

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrKeyUnavailable = errors.New("access key does not exist or was already used")
	ErrDuplicateKey   = errors.New("access key already exists")
)

// StatsID is the fixed id of the singleton stats record.
const StatsID = "bot_stats"
