//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test with the race detector.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withStream())
	return err
}

// Runs the tests that need no GPU or window.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "-count=1",
		"./engine/gpu/...", "./engine/render/...", "./engine/ui/...", "./engine/scene/...",
		"./engine/assets/...", "./engine/core/...", "./engine/math/...", "./engine/containers/...",
		"./engine/systems/..."), withStream())
	return err
}
