// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package qos

import (
	"context"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"
)

var ErrNoRegions = errors.New("region directory returned no regions")

// regionCache holds the first successful, non-empty region listing for the
// lifetime of its Scheduler. Concurrent first-time lookups share a single
// directory call. The zero value is ready to use.
type regionCache struct {
	mutex   sync.RWMutex
	regions []RegionCandidate
	hash    string
	group   singleflight.Group
}

type cachedRegions struct {
	regions []RegionCandidate
	hash    string
}

// get returns the cached regions, calling lister if nothing is cached yet.
// Errors and empty listings are never cached so the next call retries.
func (c *regionCache) get(ctx context.Context, lister RegionLister) ([]RegionCandidate, string, error) {
	if lister == nil {
		return nil, "", errors.New("no region directory configured")
	}
	c.mutex.RLock()
	regions, hash := c.regions, c.hash
	c.mutex.RUnlock()
	if regions != nil {
		return regions, hash, nil
	}

	v, err, _ := c.group.Do("regions", func() (interface{}, error) {
		// Another caller may have filled the cache while we waited for the
		// read lock to be released.
		c.mutex.RLock()
		if c.regions != nil {
			cached := cachedRegions{regions: c.regions, hash: c.hash}
			c.mutex.RUnlock()
			return cached, nil
		}
		c.mutex.RUnlock()

		listed, err := lister.ListCandidateRegions(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "listing candidate regions")
		}
		if len(listed) == 0 {
			return nil, ErrNoRegions
		}

		fresh := cachedRegions{
			regions: append([]RegionCandidate(nil), listed...),
			hash:    fingerprint(listed),
		}
		c.mutex.Lock()
		c.regions, c.hash = fresh.regions, fresh.hash
		c.mutex.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, "", err
	}
	cached := v.(cachedRegions)
	return cached.regions, cached.hash, nil
}

// fingerprint is an order independent xxh3 hash of the region set, so that
// telemetry from clients that saw the same directory contents can be grouped.
func fingerprint(regions []RegionCandidate) string {
	entries := make([]string, 0, len(regions))
	for _, r := range regions {
		entries = append(entries, r.Region+"="+r.Address)
	}
	sort.Strings(entries)
	sum := xxh3.Hash128Seed([]byte(strings.Join(entries, ",")), 0).Bytes()
	return hex.EncodeToString(sum[:])
}
