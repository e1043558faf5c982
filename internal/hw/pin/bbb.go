package pin

// BeagleBoneBlack returns the built-in pin table for the BeagleBone Black
// headers. It covers the user LEDs, the PWM-capable pins, the analog inputs
// and the commonly used GPIO pins; config can add the rest.
func BeagleBoneBlack() Table {
	t := Table{}
	add := func(d Descriptor) { t[d.Key] = d }

	add(Descriptor{Key: "USR0", Name: "USR0", GPIO: Int(53), LED: "usr0", MuxRegOffset: "0x054"})
	add(Descriptor{Key: "USR1", Name: "USR1", GPIO: Int(54), LED: "usr1", MuxRegOffset: "0x058"})
	add(Descriptor{Key: "USR2", Name: "USR2", GPIO: Int(55), LED: "usr2", MuxRegOffset: "0x05c"})
	add(Descriptor{Key: "USR3", Name: "USR3", GPIO: Int(56), LED: "usr3", MuxRegOffset: "0x060"})

	add(Descriptor{Key: "P8_7", Name: "TIMER4", GPIO: Int(66), MuxRegOffset: "0x090"})
	add(Descriptor{Key: "P8_8", Name: "TIMER7", GPIO: Int(67), MuxRegOffset: "0x094"})
	add(Descriptor{Key: "P8_13", Name: "EHRPWM2B", GPIO: Int(23), MuxRegOffset: "0x024",
		PWM: &PWM{Name: "EHRPWM2B", Module: "ehrpwm2", Index: 1, MuxMode: 4}})
	add(Descriptor{Key: "P8_19", Name: "EHRPWM2A", GPIO: Int(22), MuxRegOffset: "0x020",
		PWM: &PWM{Name: "EHRPWM2A", Module: "ehrpwm2", Index: 0, MuxMode: 4}})

	add(Descriptor{Key: "P9_12", Name: "GPIO1_28", GPIO: Int(60), MuxRegOffset: "0x078"})
	add(Descriptor{Key: "P9_14", Name: "EHRPWM1A", GPIO: Int(50), MuxRegOffset: "0x048",
		PWM: &PWM{Name: "EHRPWM1A", Module: "ehrpwm1", Index: 0, MuxMode: 6}})
	add(Descriptor{Key: "P9_15", Name: "GPIO1_16", GPIO: Int(48), MuxRegOffset: "0x040"})
	add(Descriptor{Key: "P9_16", Name: "EHRPWM1B", GPIO: Int(51), MuxRegOffset: "0x04c",
		PWM: &PWM{Name: "EHRPWM1B", Module: "ehrpwm1", Index: 1, MuxMode: 6}})
	add(Descriptor{Key: "P9_21", Name: "UART2_TXD", GPIO: Int(3), MuxRegOffset: "0x154",
		PWM: &PWM{Name: "EHRPWM0B", Module: "ehrpwm0", Index: 1, MuxMode: 3}})
	add(Descriptor{Key: "P9_22", Name: "UART2_RXD", GPIO: Int(2), MuxRegOffset: "0x150",
		PWM: &PWM{Name: "EHRPWM0A", Module: "ehrpwm0", Index: 0, MuxMode: 3}})
	add(Descriptor{Key: "P9_23", Name: "GPIO1_17", GPIO: Int(49), MuxRegOffset: "0x044"})
	add(Descriptor{Key: "P9_41", Name: "CLKOUT2", GPIO: Int(20), MuxRegOffset: "0x1b4"})
	add(Descriptor{Key: "P9_42", Name: "GPIO0_7", GPIO: Int(7), MuxRegOffset: "0x164",
		PWM: &PWM{Name: "ECAPPWM0", Module: "ecap0", Index: 0, MuxMode: 0}})

	add(Descriptor{Key: "P9_33", Name: "AIN4", AIN: Int(4)})
	add(Descriptor{Key: "P9_35", Name: "AIN6", AIN: Int(6)})
	add(Descriptor{Key: "P9_36", Name: "AIN5", AIN: Int(5)})
	add(Descriptor{Key: "P9_37", Name: "AIN2", AIN: Int(2)})
	add(Descriptor{Key: "P9_38", Name: "AIN3", AIN: Int(3)})
	add(Descriptor{Key: "P9_39", Name: "AIN0", AIN: Int(0)})
	add(Descriptor{Key: "P9_40", Name: "AIN1", AIN: Int(1)})

	return t
}
