/*
Copyright (c) Facebook, Inc. and its affiliates.

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

// Package estimator implements the path-delay/rate estimators of
// spec.md §4.7: the neighborRateRatio IIR filter, the grandmaster
// frequency-adjustment accumulator, and the four-state phase-correction
// machine. It is grounded on servo/pi.go's IIR-with-spike-filter shape,
// generalized from a single PI servo sample stream to the two
// independent rate/phase estimators gPTP's algorithm separates.
package estimator

// ClockAdjuster is the subset of clockreg.Registry the frequency and
// phase estimators need to apply corrections to the grandmaster clock.
type ClockAdjuster interface {
	SetAdj(clockIndex int, domainNumber uint8, ppb float64) error
	SetOffset64(clockIndex int, domainNumber uint8, delta int64) error
}
