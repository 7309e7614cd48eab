// Copyright 2014 Google Inc. All rights reserved.
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

//go:build !unix

package localfs

import "os"

// etagSource has no inode equivalent to fold in on non-unix platforms;
// size and modification time (already in Metadata) are all etagFor has
// to work with there, same fallback localfs.rs takes off Linux.
func etagSource(fi os.FileInfo) string {
	return ""
}
