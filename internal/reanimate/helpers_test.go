package reanimate

import "time"

var testEnd = time.Date(2026, 8, 1, 12, 0, 1, 0, time.UTC)
