// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build tools
// +build tools

// Package main pins test dependencies that are only imported behind build
// tags, so go mod tidy keeps them.
package main

import (
	// Integration suite (//go:build integration)
	_ "github.com/onsi/ginkgo/v2"
	_ "github.com/onsi/gomega"
)
