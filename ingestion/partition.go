// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"fmt"
	"time"

	"github.com/poiesic/annotit/core"
)

// Partition splits [start, end) into consecutive half-open intervals of
// intervalDays calendar days. The last interval is truncated to end.
func Partition(start, end time.Time, intervalDays int) ([]core.DateInterval, error) {
	if intervalDays <= 0 {
		return nil, fmt.Errorf("%w: interval must be at least one day, got %d", core.ErrConfiguration, intervalDays)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: date end %s is not after date start %s",
			core.ErrConfiguration, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	var intervals []core.DateInterval
	for cur := start; cur.Before(end); {
		next := cur.AddDate(0, 0, intervalDays)
		if next.After(end) {
			next = end
		}
		intervals = append(intervals, core.DateInterval{Start: cur, End: next})
		cur = next
	}
	return intervals, nil
}
