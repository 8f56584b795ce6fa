package models

import "errors"

var (
	ErrMissingID     = errors.New("record has no id")
	ErrUnreadableDOB = errors.New("record date of birth is not YYYY-MM-DD")
)
