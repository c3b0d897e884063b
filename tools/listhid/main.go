//go:build windows
// +build windows

// listhid prints every HID interface, or only ASUS ones with -asus.
package main

import (
	"fmt"
	"os"

	"github.com/sstallion/go-hid"
)

const vendorAsus = 0x0B05

func main() {
	if err := hid.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "hid init:", err)
		os.Exit(1)
	}
	defer hid.Exit()

	var vid uint16
	if len(os.Args) > 1 && os.Args[1] == "-asus" {
		vid = vendorAsus
	}

	fmt.Println("HID Devices:")
	n := 0
	err := hid.Enumerate(vid, 0, func(info *hid.DeviceInfo) error {
		n++
		fmt.Printf("VID: 0x%04x, PID: 0x%04x, Path: %s, Product: %s, UsagePage: 0x%04x, Usage: 0x%02x, Interface: %d\n",
			info.VendorID, info.ProductID, info.Path, info.ProductStr, info.UsagePage, info.Usage, info.InterfaceNbr)
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "enumerate:", err)
		os.Exit(1)
	}
	fmt.Printf("%d interface(s)\n", n)
}
