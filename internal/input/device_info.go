package input

import (
	"os"
	"path/filepath"
	"strings"
)

// persistentDirs are searched in order for a stable name of an event node
var persistentDirs = []string{"/dev/input/by-id", "/dev/input/by-path"}

// DeviceInfo describes an event node in a form worth putting in controller.devices
type DeviceInfo struct {
	Path string
	Name string
	// StablePath survives replugging and reboots; empty when udev made no link
	StablePath string
	Phys       string
}

// ConfigPath is the path to store in the config, preferring the stable link
func (d DeviceInfo) ConfigPath() string {
	if d.StablePath != "" {
		return d.StablePath
	}
	return d.Path
}

// DescribeDevice resolves the udev links and sysfs attributes of an event node
func DescribeDevice(eventPath string) DeviceInfo {
	info := DeviceInfo{Path: eventPath}
	eventName := filepath.Base(eventPath)

	if link := findLink(persistentDirs, eventName); link != "" {
		info.StablePath = link
		info.Name = cleanDeviceName(filepath.Base(link))
	}

	sysPath := filepath.Join("/sys/class/input", eventName, "device")
	if info.Name == "" {
		info.Name = readAttr(filepath.Join(sysPath, "name"))
	}
	info.Phys = readAttr(filepath.Join(sysPath, "phys"))
	return info
}

// findLink returns the first symlink in dirs pointing at eventName
func findLink(dirs []string, eventName string) string {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !strings.Contains(entry.Name(), "event") {
				continue
			}
			link := filepath.Join(dir, entry.Name())
			if target, err := os.Readlink(link); err == nil && filepath.Base(target) == eventName {
				return link
			}
		}
	}
	return ""
}

func readAttr(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// cleanDeviceName removes common prefixes/suffixes for cleaner display
func cleanDeviceName(name string) string {
	name = strings.TrimPrefix(name, "usb-")
	for _, suffix := range []string{"-event-kbd", "-event-mouse", "-event-if01", "-event-if02", "-if01", "-if02"} {
		name = strings.TrimSuffix(name, suffix)
	}
	return name
}
