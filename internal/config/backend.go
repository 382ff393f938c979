package config

// Backend is the persisted settings layer beneath .env and FOLIO_* variables.
// ok is false when the key has never been set.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
}
