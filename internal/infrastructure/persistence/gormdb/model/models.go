package model

// All lists every table for schema migration.
func All() []any {
	return []any{
		&Patch{},
		&PatchRating{},
		&PatchClaim{},
		&PatchClaimLog{},
		&User{},
		&KV{},
	}
}
