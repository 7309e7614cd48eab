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

package localfs

import (
	"encoding/json"
	"os"

	dav "github.com/nmathewson/davengine"
)

type storedProp struct {
	Space string `json:"space"`
	Local string `json:"local"`
	Value string `json:"value"`
}

func readProps(path string) (map[dav.PropName]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var stored []storedProp
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	out := make(map[dav.PropName]string, len(stored))
	for _, sp := range stored {
		out[dav.PropName{Space: sp.Space, Local: sp.Local}] = sp.Value
	}
	return out, nil
}

func writeProps(path string, props map[dav.PropName]string) error {
	if len(props) == 0 {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return wrapErr(err)
		}
		return nil
	}
	stored := make([]storedProp, 0, len(props))
	for k, v := range props {
		stored = append(stored, storedProp{Space: k.Space, Local: k.Local, Value: v})
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return wrapErr(os.WriteFile(path, data, 0600))
}
