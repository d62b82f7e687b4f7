package tracker

import "time"

const BusyRetryDelay = 500 * time.Millisecond
const BusyRetryLimit = 20
