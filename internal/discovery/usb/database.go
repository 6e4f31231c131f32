// internal/discovery/usb/database.go
package usb

import (
	"strconv"
	"strings"

	"github.com/google/gousb"
	"github.com/google/gousb/usbid"
)

// DeviceDatabase names USB serial adapters. Well-known bridge chips are
// listed here; everything else is looked up in the usb.ids table.
type DeviceDatabase struct {
	vendors map[gousb.ID]*VendorInfo
}

// VendorInfo contains vendor-specific information
type VendorInfo struct {
	Name     string
	products map[gousb.ID]*ProductInfo
}

// ProductInfo contains product-specific information
type ProductInfo struct {
	Model string
}

// NewDeviceDatabase creates and initializes the device database
func NewDeviceDatabase() *DeviceDatabase {
	db := &DeviceDatabase{
		vendors: make(map[gousb.ID]*VendorInfo),
	}
	db.initializeDatabase()
	return db
}

func (db *DeviceDatabase) initializeDatabase() {
	db.vendors[0x0403] = &VendorInfo{
		Name: "FTDI",
		products: map[gousb.ID]*ProductInfo{
			0x6001: {Model: "FT232R USB UART"},
			0x6010: {Model: "FT2232 Dual UART"},
			0x6011: {Model: "FT4232 Quad UART"},
			0x6014: {Model: "FT232H Single HS USB-UART"},
			0x6015: {Model: "FT-X Series USB UART"},
		},
	}

	db.vendors[0x067B] = &VendorInfo{
		Name: "Prolific",
		products: map[gousb.ID]*ProductInfo{
			0x2303: {Model: "PL2303 Serial Port"},
			0x23A3: {Model: "PL2303GC Serial Port"},
		},
	}

	db.vendors[0x10C4] = &VendorInfo{
		Name: "Silicon Labs",
		products: map[gousb.ID]*ProductInfo{
			0xEA60: {Model: "CP210x UART Bridge"},
			0xEA70: {Model: "CP2105 Dual UART Bridge"},
		},
	}

	db.vendors[0x1A86] = &VendorInfo{
		Name: "WCH",
		products: map[gousb.ID]*ProductInfo{
			0x7523: {Model: "CH340 Serial Converter"},
			0x55D4: {Model: "CH9102 Serial Converter"},
		},
	}

	db.vendors[0x2341] = &VendorInfo{
		Name: "Arduino",
		products: map[gousb.ID]*ProductInfo{
			0x0043: {Model: "Uno"},
			0x0042: {Model: "Mega 2560"},
		},
	}
}

// IsKnownVendor checks if the vendor is a listed bridge vendor
func (db *DeviceDatabase) IsKnownVendor(vendorID gousb.ID) bool {
	_, exists := db.vendors[vendorID]
	return exists
}

// GetVendorInfo returns vendor information
func (db *DeviceDatabase) GetVendorInfo(vendorID gousb.ID) *VendorInfo {
	return db.vendors[vendorID]
}

// GetProductInfo returns product information for a vendor
func (vi *VendorInfo) GetProductInfo(productID gousb.ID) *ProductInfo {
	return vi.products[productID]
}

// Describe returns "vendor product" for the given ids, or "" when the
// vendor is unknown
func (db *DeviceDatabase) Describe(vendorID, productID gousb.ID) string {
	if vendor := db.vendors[vendorID]; vendor != nil {
		if product := vendor.GetProductInfo(productID); product != nil {
			return vendor.Name + " " + product.Model
		}
		return vendor.Name
	}

	vendor, ok := usbid.Vendors[vendorID]
	if !ok {
		return ""
	}
	if product, ok := vendor.Product[productID]; ok {
		return vendor.Name + " " + product.Name
	}
	return vendor.Name
}

// ParseID parses a hexadecimal vendor or product id such as "0403" or "0x0403"
func ParseID(s string) (gousb.ID, bool) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, false
	}
	return gousb.ID(v), true
}
