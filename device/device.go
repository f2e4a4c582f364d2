//go:build tinygo

// Package device wraps the RP2350 ROM services the node depends on:
// software reset, timed reboot for deep sleep, and raw flash access
// for the configuration sector.
package device

/*
#include <stdint.h>
#include <stdbool.h>
#include <stddef.h>

// ============================================================================
// ROM Function Infrastructure (duplicated from TinyGo's machine_rp2350_rom.go)
// ============================================================================

// ROM table code macro - creates 16-bit code from two characters
#define ROM_TABLE_CODE(c1, c2) ((c1) | ((c2) << 8))

// ROM function codes
#define ROM_FUNC_REBOOT ROM_TABLE_CODE('R', 'B')

// Bootrom constants
#define BOOTROM_FUNC_TABLE_OFFSET   0x14
#define BOOTROM_WELL_KNOWN_PTR_SIZE 2
#define BOOTROM_TABLE_LOOKUP_OFFSET (BOOTROM_FUNC_TABLE_OFFSET + BOOTROM_WELL_KNOWN_PTR_SIZE)

// ROM lookup flags
#define RT_FLAG_FUNC_ARM_SEC    0x0004
#define RT_FLAG_FUNC_ARM_NONSEC 0x0010

// Reboot type flags
#define REBOOT2_FLAG_REBOOT_TYPE_NORMAL   0x0
#define REBOOT2_FLAG_NO_RETURN_ON_SUCCESS 0x100

// Function pointer types
typedef void *(*rom_table_lookup_fn)(uint32_t code, uint32_t mask);
typedef int (*rom_reboot_fn)(uint32_t flags, uint32_t delay_ms, uint32_t p0, uint32_t p1);

// TinyGo on RP2350 runs in Secure mode (no TrustZone configured)
__attribute__((always_inline))
static inline bool pico_processor_state_is_nonsecure(void) {
    return false;
}

// ROM function lookup (matches TinyGo's implementation pattern)
__attribute__((always_inline))
static void *rom_func_lookup_inline(uint32_t code) {
    rom_table_lookup_fn rom_table_lookup =
        (rom_table_lookup_fn)(uintptr_t)*(uint16_t*)(BOOTROM_TABLE_LOOKUP_OFFSET);
    if (pico_processor_state_is_nonsecure()) {
        return rom_table_lookup(code, RT_FLAG_FUNC_ARM_NONSEC);
    } else {
        return rom_table_lookup(code, RT_FLAG_FUNC_ARM_SEC);
    }
}

// ============================================================================
// Reset and deep sleep
// ============================================================================

// device_reboot_normal performs a system reboot using the watchdog
// TRIGGER bit. More reliable than ROM reboot on RP2350.
static void device_reboot_normal(void) {
    // RP2350 watchdog registers (from datasheet section 12.9)
    // NOTE: 0x400d8000, NOT 0x40058000 (which is PLL_USB)
    #define WATCHDOG_BASE 0x400d8000
    #define WATCHDOG_CTRL (WATCHDOG_BASE + 0x00)

    // Bit 31 = TRIGGER - forces immediate watchdog reset
    #define WATCHDOG_CTRL_TRIGGER (1u << 31)

    *(volatile uint32_t*)WATCHDOG_CTRL = WATCHDOG_CTRL_TRIGGER;

    // Should not reach here
    while(1) { __asm__("nop"); }
}

// device_sleep_reboot requests a ROM reboot after delay_ms. The ROM
// parks the chip in its low power wait until the delay expires, which
// is the closest RP2350 equivalent of an ESP32 timed deep sleep.
static int device_sleep_reboot(uint32_t delay_ms) {
    rom_reboot_fn func = (rom_reboot_fn) rom_func_lookup_inline(ROM_FUNC_REBOOT);
    if (!func) return -1;
    int ret = func(REBOOT2_FLAG_REBOOT_TYPE_NORMAL | REBOOT2_FLAG_NO_RETURN_ON_SUCCESS,
                   delay_ms, 0, 0);
    if (ret == 0) {
        // Success - wait for the ROM to take over
        while(1) { __asm__("wfi"); }
    }
    return ret;
}

// ============================================================================
// Direct Flash Operations (bypasses TinyGo's machine.Flash which uses wrong offsets)
// Adapted from TinyGo's machine_rp2350_rom.go flash implementation
// ============================================================================

// ROM function codes for flash operations
#define ROM_FUNC_CONNECT_INTERNAL_FLASH ROM_TABLE_CODE('I', 'F')
#define ROM_FUNC_FLASH_EXIT_XIP         ROM_TABLE_CODE('E', 'X')
#define ROM_FUNC_FLASH_RANGE_ERASE      ROM_TABLE_CODE('R', 'E')
#define ROM_FUNC_FLASH_RANGE_PROGRAM    ROM_TABLE_CODE('R', 'P')
#define ROM_FUNC_FLASH_FLUSH_CACHE      ROM_TABLE_CODE('F', 'C')

// Flash constants
#define FLASH_SECTOR_SIZE      4096
#define FLASH_SECTOR_ERASE_CMD 0x20  // 4KB sector erase

#define XIP_BASE 0x10000000

typedef void (*flash_connect_internal_fn)(void);
typedef void (*flash_exit_xip_fn)(void);
typedef void (*flash_range_erase_fn)(uint32_t addr, size_t count, uint32_t block_size, uint8_t block_cmd);
typedef void (*flash_range_program_fn)(uint32_t addr, const uint8_t *data, size_t count);
typedef void (*flash_flush_cache_fn)(void);

// device_flash_write writes data to flash at the given raw offset.
// Simplified implementation - relies on TinyGo having set up XIP/boot2 correctly.
static void device_flash_write(uint32_t offset, const uint8_t *data, uint32_t len) {
    flash_connect_internal_fn connect = (flash_connect_internal_fn)rom_func_lookup_inline(ROM_FUNC_CONNECT_INTERNAL_FLASH);
    flash_exit_xip_fn exit_xip = (flash_exit_xip_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_EXIT_XIP);
    flash_range_program_fn program = (flash_range_program_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_RANGE_PROGRAM);
    flash_flush_cache_fn flush = (flash_flush_cache_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_FLUSH_CACHE);

    if (!connect || !exit_xip || !program || !flush) return;

    // Disable interrupts during flash operation
    uint32_t status;
    __asm__ volatile ("mrs %0, primask" : "=r" (status));
    __asm__ volatile ("cpsid i");

    connect();
    exit_xip();
    program(offset, data, len);
    flush();

    __asm__ volatile ("msr primask, %0" : : "r" (status));
}

// device_flash_erase erases flash sectors at the given raw offset.
// count is number of BYTES to erase (must be multiple of 4096)
static void device_flash_erase(uint32_t offset, uint32_t count) {
    flash_connect_internal_fn connect = (flash_connect_internal_fn)rom_func_lookup_inline(ROM_FUNC_CONNECT_INTERNAL_FLASH);
    flash_exit_xip_fn exit_xip = (flash_exit_xip_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_EXIT_XIP);
    flash_range_erase_fn erase = (flash_range_erase_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_RANGE_ERASE);
    flash_flush_cache_fn flush = (flash_flush_cache_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_FLUSH_CACHE);

    if (!connect || !exit_xip || !erase || !flush) return;

    // Disable interrupts during flash operation
    uint32_t status;
    __asm__ volatile ("mrs %0, primask" : "=r" (status));
    __asm__ volatile ("cpsid i");

    connect();
    exit_xip();
    erase(offset, count, FLASH_SECTOR_SIZE, FLASH_SECTOR_ERASE_CMD);
    flush();

    __asm__ volatile ("msr primask, %0" : : "r" (status));
}

// device_flash_read copies flash contents out through the XIP window.
static void device_flash_read(uint32_t offset, uint8_t *dst, uint32_t len) {
    const uint8_t *src = (const uint8_t*)(XIP_BASE + offset);
    for (uint32_t i = 0; i < len; i++) {
        dst[i] = src[i];
    }
}
*/
import "C"

import (
	"errors"
)

const (
	SectorSize = 4096 // 4KB erase block
	PageSize   = 256  // 256B write block

	// ConfigSectorOffset is the raw flash offset of the settings
	// sector. It sits in the reserved region above the firmware
	// image so reflashing the firmware leaves settings intact.
	// Layout: PT (8KB) | firmware (1984KB x 2) | reserved.
	ConfigSectorOffset = 0x3E2000
)

var (
	ErrSleepFailed = errors.New("device: timed reboot rejected by ROM")
	ErrWriteAlign  = errors.New("device: flash write not page aligned")
)

// wifiShutdownFunc is called before any reset to quiesce the radio
var wifiShutdownFunc func()

// SetWiFiShutdown registers a function to call before reset or deep
// sleep (like Pico SDK's cyw43_arch_deinit).
func SetWiFiShutdown(fn func()) {
	wifiShutdownFunc = fn
}

// Reset performs an immediate system reboot. Does not return.
func Reset() {
	if wifiShutdownFunc != nil {
		wifiShutdownFunc()
	}
	C.device_reboot_normal()
}

// DeepSleepMillis parks the chip and reboots after the given delay.
// Only returns on failure; callers should fall back to Reset.
func DeepSleepMillis(delayMillis uint32) error {
	if wifiShutdownFunc != nil {
		wifiShutdownFunc()
	}
	if ret := C.device_sleep_reboot(C.uint32_t(delayMillis)); ret != 0 {
		return ErrSleepFailed
	}
	return nil
}

// EraseSector erases the 4KB sector at the given raw flash offset.
func EraseSector(offset uint32) {
	C.device_flash_erase(C.uint32_t(offset), C.uint32_t(SectorSize))
}

// WritePages programs data at the given raw flash offset. The data
// length must be a multiple of PageSize and the sector must already be
// erased.
func WritePages(offset uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if len(data)%PageSize != 0 {
		return ErrWriteAlign
	}
	C.device_flash_write(C.uint32_t(offset), (*C.uint8_t)(&data[0]), C.uint32_t(len(data)))
	return nil
}

// ReadFlash copies flash contents at the given raw offset into dst.
func ReadFlash(offset uint32, dst []byte) {
	if len(dst) == 0 {
		return
	}
	C.device_flash_read(C.uint32_t(offset), (*C.uint8_t)(&dst[0]), C.uint32_t(len(dst)))
}
