package models

// Field encryption parameters for stored post content
const (
	KeySize    = 32     // AES-256
	NonceSize  = 12     // GCM standard nonce size
	Iterations = 100000 // PBKDF2 iterations
)
