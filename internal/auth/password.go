package auth

import (
	"github.com/alexedwards/argon2id"
)

// The encoded hash carries its own parameters. Changing these only affects
// new hashes; Verify keeps accepting old ones.
var params = &argon2id.Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Hash produces an argon2id hash with the parameters encoded in it.
func Hash(password string) (string, error) {
	return argon2id.CreateHash(password, params)
}

func Verify(password, encodedHash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(password, encodedHash)
}
