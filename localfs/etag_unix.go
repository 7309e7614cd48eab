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

//go:build unix

package localfs

import (
	"os"
	"strconv"
	"syscall"
)

// etagSource folds the inode number into the ETag on platforms that have
// one, matching localfs.rs's Linux-only etag() (mtime+size+inode hashed
// through sha2). The inode is enough on its own to disambiguate two
// files with identical size and mtime; the hashing in the original is
// cosmetic, so this returns the raw number instead.
func etagSource(fi os.FileInfo) string {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return ""
	}
	return strconv.FormatUint(uint64(st.Ino), 16)
}
