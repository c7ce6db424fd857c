package mailing

import (
	"crypto/md5"

	"github.com/ignite/textdispatch/internal/domain"
)

// SelectVariant deterministically assigns a phone to an A/B variant. The
// md5 digest of the normalized phone, read as a big-endian integer, picks A
// when even and B when odd. Without a second template every phone gets A.
func SelectVariant(phone string, hasVariants bool) domain.Variant {
	if !hasVariants {
		return domain.VariantA
	}
	sum := md5.Sum([]byte(phone))
	if sum[len(sum)-1]&1 == 0 {
		return domain.VariantA
	}
	return domain.VariantB
}
