package main

import (
	"os/exec"
	"runtime"
	"strings"
)

func openURL(url string) error {
	name, args := browserCommand(runtime.GOOS, url, runtime.GOOS == "linux" && isWSL())
	return exec.Command(name, args...).Start()
}

// browserCommand picks the command that opens url in the default browser.
func browserCommand(goos, url string, wsl bool) (string, []string) {
	switch {
	case goos == "windows":
		// empty title argument, otherwise start treats a quoted url as the title
		return "cmd", []string{"/c", "start", "", url}
	case goos == "darwin":
		return "open", []string{url}
	case wsl:
		return "cmd.exe", []string{"/c", "start", "", url}
	default:
		return "xdg-open", []string{url}
	}
}

// isWSL checks if the Go program is running inside Windows Subsystem for Linux
func isWSL() bool {
	releaseData, err := exec.Command("uname", "-r").Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(releaseData)), "microsoft")
}
