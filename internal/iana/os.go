package iana

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// OSName is an entry of the Operating System Names registry. The zero
// value is not a registry member; use ParseOSName to construct one.
type OSName string

var osNameList = []string{
	"AEGIS", "AIX-PS/2", "AIX/370",
	"AMIGA-OS-1.2", "AMIGA-OS-1.3", "AMIGA-OS-2.0", "AMIGA-OS-2.1",
	"AMIGA-OS-3.0", "AMIGA-OS-3.1", "AMIGA-OS-3.5", "AMIGA-OS-3.9",
	"APOLLO", "BEOS-4.5.2", "BEOS-5.0", "BS-2000", "CEDAR", "CGW",
	"CHORUS", "CHRYSALIS", "CMOS", "CMS", "COS", "CPIX", "CTOS", "CTSS",
	"CYGWIN", "DCN", "DDNOS", "DOMAIN", "DOS", "ECOS", "ECOSPRO", "EDX",
	"ELF", "EMBOS", "EMMOS", "EPOS", "FOONEX", "FORTH", "FREEBSD", "FUZZ",
	"GCOS", "GPOS", "HDOS", "IMAGEN", "IMPRESS", "INSTANT-INTERNET",
	"INTERCOM", "INTERLISP", "IOS", "IRIX", "ISI-68020", "ITS", "KOSOS",
	"LINUX", "LINUX-1.0", "LINUX-1.2", "LINUX-2.0", "LINUX-2.2",
	"LINUX-2.4", "LINUX-2.6", "LISP", "LISPM", "LOCUS", "MACOS", "MINOS",
	"MOS", "MPE/IX", "MPE/V", "MPE5", "MSDOS", "MULTICS", "MUSIC",
	"MUSIC/SP", "MVS", "MVS/SP", "NETBSD-1.0", "NETBSD-1.1", "NETBSD-1.2",
	"NETBSD-1.3", "NETWARE-3", "NETWARE-3.11", "NETWARE-4.0",
	"NETWARE-4.1", "NETWARE-5.0", "NEXUS", "NMS", "NONSTOP", "NOS-2",
	"NTOS", "OPENBSD", "OPENVME", "OPENVMS", "OS/2", "OS/DDP", "OS4",
	"OS86", "OSX", "PCDOS", "PERQ/OS", "PLI", "PRIMOS", "PSDOS/MIT",
	"PSOS", "RISC-OS", "RISC-OS-3.10", "RISC-OS-3.50", "RISC-OS-3.60",
	"RISC-OS-3.70", "RISC-OS-4.00", "RMX/RDOS", "ROS", "RSX11M", "RTE-A",
	"SATOPS", "SCO-OPEN-DESKTOP-1.0", "SCO-OPEN-DESKTOP-1.1",
	"SCO-OPEN-DESKTOP-2.0", "SCO-OPEN-DESKTOP-3.0",
	"SCO-OPEN-DESKTOP-LITE-3.0", "SCO-OPEN-SERVER-3.0", "SCO-UNIX-3.2.0",
	"SCO-UNIX-3.2V2.0", "SCO-UNIX-3.2V2.1", "SCO-UNIX-3.2V4.0",
	"SCO-UNIX-3.2V4.1", "SCO-UNIX-3.2V4.2", "SCO-XENIX-386-2.3.2",
	"SCO-XENIX-386-2.3.3", "SCO-XENIX-386-2.3.4", "SCS", "SIMP", "SINIX",
	"SUN", "SUN-OS-3.5", "SUN-OS-4.0", "SWIFT", "TAC", "TANDEM", "TENEX",
	"THE-MAJOR-BBS", "TOPS10", "TOPS20", "TOS", "TP3010", "TRSDOS",
	"ULTRIX", "UNIX", "UNIX-BSD", "UNIX-PC", "UNIX-V", "UNIX-V.1",
	"UNIX-V.2", "UNIX-V.3", "UNIX-V1AT", "UNKNOWN", "UT2D", "V", "VM",
	"VM/370", "VM/CMS", "VM/SP", "VMS", "VMS/EUNICE", "VRTX", "WAITS",
	"WANG", "WIN32", "WINDOWS-95", "WINDOWS-95-OSR1", "WINDOWS-95-OSR2",
	"WINDOWS-98", "WINDOWS-CE", "WINDOWS-NT", "WINDOWS-NT-2",
	"WINDOWS-NT-3", "WINDOWS-NT-3.5", "WINDOWS-NT-3.51", "WINDOWS-NT-4",
	"WINDOWS-NT-5", "WINDOWS-NT-5.1", "WINDOWS-NT-6", "WINDOWS-NT-6.1",
	"WORLDGROUP", "WYSE-WYXWARE", "X11R3", "XDE", "XENIX",
}

var osNames = func() map[string]struct{} {
	m := make(map[string]struct{}, len(osNameList))
	for _, s := range osNameList {
		m[s] = struct{}{}
	}
	return m
}()

func ParseOSName(s string) (OSName, error) {
	if _, ok := osNames[s]; ok {
		return OSName(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOSName, s)
}

func (n OSName) String() string {
	return string(n)
}

func (n *OSName) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	v, err := ParseOSName(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*n = v
	return nil
}
