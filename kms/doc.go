// Package kms manages custody of the storage seal seed.
//
// Instead of handing a single operator the seed (--seal-key), the seed can be
// split with Shamir's Secret Sharing into shares held by different
// custodians. The server reconstructs the seed in memory at startup from any
// threshold-sized subset of the shares.
//
//	shares, err := kms.SplitSealSeed(seed, kms.ShamirConfig{Parts: 5, Threshold: 3})
//
//	recovery := kms.NewRecovery(3)
//	for _, share := range collected {
//	    if err := recovery.SubmitShare(share); err != nil { ... }
//	}
//	seed, err := recovery.Seed()
package kms
