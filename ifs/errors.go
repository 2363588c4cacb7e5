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

package ifs

import "errors"

// Sentinel domain errors, one per distinguishable failure kind. The
// tracer package maps each to the conventional errno it names; callers
// elsewhere compare with errors.Is rather than switching on dynamic
// types.
var (
	ErrNotFound        = errors.New("ifs: not found")
	ErrExists          = errors.New("ifs: already exists")
	ErrNotADirectory   = errors.New("ifs: not a directory")
	ErrIsADirectory    = errors.New("ifs: is a directory")
	ErrSymlinkLoop     = errors.New("ifs: too many levels of symbolic links")
	ErrInvalidArgument = errors.New("ifs: invalid argument")
	ErrCrossDevice     = errors.New("ifs: cross-device link")
	ErrBadHandle       = errors.New("ifs: bad file descriptor")
	ErrStorageFailure  = errors.New("ifs: storage failure")
	ErrNotEmpty        = errors.New("ifs: directory not empty")
)
