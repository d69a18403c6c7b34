package backend

// FourCC codes, most significant byte first
var (
	FourCCYUYV  = FourCC("YUYV")
	FourCCUYVY  = FourCC("UYVY")
	FourCCZ16   = FourCC("Z16 ")
	FourCCY8    = FourCC("GREY")
	FourCCY8I   = FourCC("Y8I ")
	FourCCY16   = FourCC("Y16 ")
	FourCCRGB   = FourCC("RGB2")
	FourCCMJPG  = FourCC("MJPG")
	FourCCGyro  = FourCC("GYRO")
	FourCCAccel = FourCC("ACCL")
	FourCCGPIO  = FourCC("GPIO")
)

// FourCC packs a four character code. Shorter codes are padded with spaces.
func FourCC(code string) uint32 {
	var b [4]byte
	for i := range b {
		b[i] = ' '
		if i < len(code) {
			b[i] = code[i]
		}
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// FourCCString unpacks a four character code
func FourCCString(v uint32) string {
	return string([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
