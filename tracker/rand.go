package tracker

import "crypto/rand"

// cryptoRandRead fills b with random bytes for UDP transaction ids.
// Pulled out as its own tiny indirection so tests can substitute a
// deterministic source.
var cryptoRandRead = rand.Read
