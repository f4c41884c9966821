/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package constraints

// DefaultRegistry registers every built-in hard and soft constraint and
// applies the "standard" preset (§4.2's default).
func DefaultRegistry(defaultSupervisionRatio int) *Registry {
	r := NewRegistry(append(BuiltinHard(defaultSupervisionRatio), BuiltinSoft()...)...)
	_ = r.ApplyPreset("standard")
	return r
}
