package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sstent/garmindash/internal/models"
)

const fileExt = ".parquet"

// Key identifies one cache entry.
type Key struct {
	Metric models.MetricType
	Range  models.DateRange
}

// FileName is <metric>_<start>_to_<end>.parquet.
func (k Key) FileName() string {
	return fmt.Sprintf("%s_%s%s", k.Metric, k.Range, fileExt)
}

func (k Key) String() string {
	return fmt.Sprintf("%s[%s]", k.Metric, k.Range)
}

// ParseFileName reverses FileName.
func ParseFileName(name string) (Key, error) {
	if !strings.HasSuffix(name, fileExt) {
		return Key{}, fmt.Errorf("not a cache file: %s", name)
	}
	base := strings.TrimSuffix(name, fileExt)

	// metric names may contain underscores, dates never do
	sep := strings.LastIndex(base, "_to_")
	if sep < 0 {
		return Key{}, fmt.Errorf("malformed cache file name: %s", name)
	}
	end := base[sep+len("_to_"):]
	head := base[:sep]
	us := strings.LastIndex(head, "_")
	if us < 0 {
		return Key{}, fmt.Errorf("malformed cache file name: %s", name)
	}

	metric, err := models.ParseMetricType(head[:us])
	if err != nil {
		return Key{}, err
	}
	r, err := models.ParseDateRange(head[us+1:], end)
	if err != nil {
		return Key{}, err
	}
	return Key{Metric: metric, Range: r}, nil
}

// UserDir turns a login name into a directory name: a readable form of the
// name followed by a short hash of it, so logins that read alike such as
// a.b@x.com and a_b@x.com get separate caches. Case and surrounding spaces
// are ignored.
func UserDir(username string) string {
	name := strings.ToLower(strings.TrimSpace(username))
	sum := sha256.Sum256([]byte(name))
	readable := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	return readable + "-" + hex.EncodeToString(sum[:4])
}
