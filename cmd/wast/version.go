package main

// version is overwritten at build time via -ldflags (see the teacher's
// cmd/kubexm/cmd/version.go for the same pattern).
var version = "dev"
