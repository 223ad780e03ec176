package main

import (
	"testing"

	"github.com/MarcinKonowalczyk/frick/utils"
)

func TestIsInterpreterArg(t *testing.T) {
	args := []string{"-debug", "brainfuck", "-file", "hello.bf"}
	ok, rest := isInterpreterArg(args)
	utils.Assert(t, ok, "expected interpreter mode")
	utils.AssertEqualArrays(t, rest, []string{"-debug", "-file", "hello.bf"})
	// the caller's slice is left alone
	utils.AssertEqual(t, args[1], "brainfuck")
}

func TestIsInterpreterArg_ShimMode(t *testing.T) {
	args := []string{"-namespace", "default", "-id", "abc", "start"}
	ok, rest := isInterpreterArg(args)
	utils.Assert(t, !ok, "expected shim mode")
	utils.AssertEqualArrays(t, rest, args)
}
