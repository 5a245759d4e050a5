/*
Package clients provides a client library for the vigil HTTP API.

VigilClient signs every request with the caller's secp256k1 key, so the
server attributes each operation to the key's address.

# Example Usage

	key, _ := crypto.HexToECDSA("your-private-key-hex")
	client := clients.NewVigilClient("https://vigil.example.com", key)

	// Reveal "will" to one beneficiary a year from now
	err := client.CreateSecret(ctx, "will", []byte("..."),
	    interfaces.Entities(beneficiary), uint64(time.Now().AddDate(1, 0, 0).Unix()))

	// Keep pushing the deadline while alive
	err = client.ResetRevelationTimestamp(ctx, "will", uint64(time.Now().AddDate(1, 0, 0).Unix()))

	// As the beneficiary, once the deadline has passed
	value, err := beneficiaryClient.GetSecretValue(ctx, owner, "will")

Registry errors are returned as the matching interfaces.ContractError and
can be tested with errors.Is.
*/
package clients
