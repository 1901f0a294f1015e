// Copyright 2019 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package source

import "fmt"

// State is the lifecycle state of a source's index.
type State int

const (
	// Uninitialized sources have not been queried yet.
	Uninitialized State = iota
	// IndexBuilding sources are fetching and parsing their index.
	IndexBuilding
	// IndexReady sources serve queries from their parsed index.
	IndexReady
	// IndexFailed sources fail every query with the error of the build.
	IndexFailed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case IndexBuilding:
		return "IndexBuilding"
	case IndexReady:
		return "IndexReady"
	case IndexFailed:
		return "IndexFailed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}
