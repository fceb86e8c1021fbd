package s3

import (
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
)

// S3 Storage Tier Constants
const (
	TierStandard          = "STANDARD"
	TierStandardIA        = "STANDARD_IA"
	TierOneZoneIA         = "ONEZONE_IA"
	TierReducedRedundancy = "REDUCED_REDUNDANCY"
	TierGlacierIR         = "GLACIER_IR"
	TierGlacier           = "GLACIER"
	TierDeepArchive       = "DEEP_ARCHIVE"
	TierIntelligent       = "INTELLIGENT_TIERING"
)

// storageTier maps a tier name onto both upload paths. An empty cargoClass
// means CargoShip has no equivalent class and the SDK path is used.
type storageTier struct {
	class      s3types.StorageClass
	cargoClass awsconfig.StorageClass
}

// storageTiers lists the tiers a table can live in. Archive tiers that need a
// restore before GetObject (GLACIER, DEEP_ARCHIVE) are absent: a merged read
// must be able to fetch every record immediately.
var storageTiers = map[string]storageTier{
	TierStandard:          {s3types.StorageClassStandard, awsconfig.StorageClassStandard},
	TierStandardIA:        {s3types.StorageClassStandardIa, awsconfig.StorageClassStandardIA},
	TierOneZoneIA:         {s3types.StorageClassOnezoneIa, awsconfig.StorageClassOneZoneIA},
	TierReducedRedundancy: {s3types.StorageClassReducedRedundancy, awsconfig.StorageClassStandard},
	TierGlacierIR:         {s3types.StorageClassGlacierIr, ""},
	TierIntelligent:       {s3types.StorageClassIntelligentTiering, awsconfig.StorageClassIntelligentTiering},
}

// tierFor returns the tier for name, falling back to STANDARD.
func tierFor(name string) storageTier {
	if t, ok := storageTiers[name]; ok {
		return t
	}
	return storageTiers[TierStandard]
}
