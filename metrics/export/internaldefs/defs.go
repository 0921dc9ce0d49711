package internaldefs

import (
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore"
)

const namespace = "authcore"

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var help = map[authcore.MetricID]string{
	authcore.MetricLoginSuccess:         "Successful password logins.",
	authcore.MetricLoginFailure:         "Failed password logins.",
	authcore.MetricLoginLocked:          "Logins refused because the account was locked.",
	authcore.MetricLockoutEngaged:       "Failures that engaged an account lockout.",
	authcore.MetricRegisterSuccess:      "Created password accounts.",
	authcore.MetricRegisterDuplicate:    "Registrations rejected as duplicate.",
	authcore.MetricRegisterInvalid:      "Registrations rejected by input validation.",
	authcore.MetricRefreshSuccess:       "Successful refresh rotations.",
	authcore.MetricRefreshFailure:       "Failed refresh rotations.",
	authcore.MetricRefreshExpired:       "Refresh attempts with an expired token.",
	authcore.MetricLogout:               "Logout-all operations.",
	authcore.MetricTokenRevoked:         "Single token revocations.",
	authcore.MetricValidateSuccess:      "Accepted access token validations.",
	authcore.MetricValidateFailure:      "Rejected access token validations.",
	authcore.MetricTokenRateLimited:     "Token checks throttled by the fingerprint limiter.",
	authcore.MetricSocialSuccess:        "Completed social sign-ins.",
	authcore.MetricSocialFailure:        "Failed social sign-ins.",
	authcore.MetricSocialAccountCreated: "Accounts created by social sign-in.",
	authcore.MetricSocialAccountLinked:  "Existing accounts linked to a provider identity.",
	authcore.MetricProviderFailure:      "Provider exchange or profile failures.",
	authcore.MetricStateRejected:        "Rejected OAuth state tokens.",
	authcore.MetricLoginLatency:         "Login latency histogram.",
	authcore.MetricRefreshLatency:       "Refresh latency histogram.",
	authcore.MetricValidateLatency:      "Validate latency histogram.",
	authcore.MetricSocialLatency:        "Social callback latency histogram.",
}

// CounterDefs lists every counter in id order.
var CounterDefs []CounterDef

// HistogramDefs lists every latency histogram in id order.
var HistogramDefs []HistogramDef

// HistogramBounds are the "le" labels of each bucket, in seconds.
var HistogramBounds []string

// HistogramBoundSuffix are the bucket labels made safe for instrument names.
var HistogramBoundSuffix []string

// BucketCount is the number of buckets in every histogram, +Inf included.
const BucketCount = len(authcore.HistogramBounds) + 1

func init() {
	for _, id := range authcore.MetricIDs() {
		if id.IsLatency() {
			HistogramDefs = append(HistogramDefs, HistogramDef{
				ID:   id,
				Name: namespace + "_" + id.String() + "_seconds",
				Help: help[id],
			})
			continue
		}
		CounterDefs = append(CounterDefs, CounterDef{
			ID:   id,
			Name: namespace + "_" + id.String() + "_total",
			Help: help[id],
		})
	}

	for _, ms := range authcore.HistogramBounds {
		le := strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64)
		HistogramBounds = append(HistogramBounds, le)
		HistogramBoundSuffix = append(HistogramBoundSuffix, strings.ReplaceAll(le, ".", "_"))
	}
	HistogramBounds = append(HistogramBounds, "+Inf")
	HistogramBoundSuffix = append(HistogramBoundSuffix, "inf")
}

// AuditDroppedName is the counter exported for dispatcher drops.
const AuditDroppedName = namespace + "_audit_dropped_total"

// NormalizeBuckets copies raw into a fixed array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into the running totals both
// exporters publish.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
