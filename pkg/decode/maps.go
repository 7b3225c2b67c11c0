package decode

// Reply lengths (header + payload + CRC) of the three decodable reads
const (
	MeterFrameLength    = 49
	BatteryFrameLength  = 81
	InverterFrameLength = 101
)

var meterFields = []Field[MeterSnapshot]{
	{"phase_a_power", 3, Int32, 1, func(s *MeterSnapshot, v float64) { s.PhaseAPowerW = v }},
	{"phase_b_power", 7, Int32, 1, func(s *MeterSnapshot, v float64) { s.PhaseBPowerW = v }},
	{"phase_c_power", 11, Int32, 1, func(s *MeterSnapshot, v float64) { s.PhaseCPowerW = v }},
	{"active_power", 15, Int32, 1, func(s *MeterSnapshot, v float64) { s.ActivePowerW = v }},
	{"feed_in_energy", 19, Int32, 100, func(s *MeterSnapshot, v float64) { s.FeedInEnergyKWh = v }},
	{"consumed_energy", 23, Int32, 100, func(s *MeterSnapshot, v float64) { s.ConsumedEnergyKWh = v }},
	{"pv_power", 39, Int32, 1, func(s *MeterSnapshot, v float64) { s.PVPowerW = v }},
	{"pv_feed_energy", 43, Int32, 100, func(s *MeterSnapshot, v float64) { s.PVFeedEnergyKWh = v }},
}

var batteryFields = []Field[BatterySnapshot]{
	{"voltage", 3, Int16, 10, func(s *BatterySnapshot, v float64) { s.Voltage = v }},
	{"current", 5, Int16, 10, func(s *BatterySnapshot, v float64) { s.Current = v }},
	{"soc", 7, Int16, 10, func(s *BatterySnapshot, v float64) { s.StateOfChargePct = v }},
	{"status", 9, Int16, 1, func(s *BatterySnapshot, v float64) { s.Status = int(v) }},
	{"relay_status", 11, Int16, 1, func(s *BatterySnapshot, v float64) { s.RelayStatus = int(v) }},
	{"cell_voltage_min", 17, Int16, 1000, func(s *BatterySnapshot, v float64) { s.CellVoltageMin = v }},
	{"cell_voltage_max", 23, Int16, 1000, func(s *BatterySnapshot, v float64) { s.CellVoltageMax = v }},
	{"cell_temp_min", 29, Int16, 10, func(s *BatterySnapshot, v float64) { s.CellTempMin = v }},
	{"cell_temp_max", 35, Int16, 10, func(s *BatterySnapshot, v float64) { s.CellTempMax = v }},
	{"charge_current_max", 37, Int16, 10, func(s *BatterySnapshot, v float64) { s.ChargeCurrentMax = v }},
	{"discharge_current_max", 39, Int16, 10, func(s *BatterySnapshot, v float64) { s.DischargeCurrentMax = v }},
	{"charge_cutoff_voltage", 41, Int16, 10, func(s *BatterySnapshot, v float64) { s.ChargeCutoffV = v }},
	{"discharge_cutoff_voltage", 43, Int16, 10, func(s *BatterySnapshot, v float64) { s.DischargeCutoffV = v }},
	{"battery_count", 51, Int16, 1, func(s *BatterySnapshot, v float64) { s.BatteryCount = int(v) }},
	{"capacity", 53, Int16, 10, func(s *BatterySnapshot, v float64) { s.CapacityKWh = v }},
	{"soh", 57, Int16, 10, func(s *BatterySnapshot, v float64) { s.StateOfHealthPct = v }},
	{"warning", 59, Uint32, 1, func(s *BatterySnapshot, v float64) { s.WarningCode = uint32(v) }},
	{"fault", 63, Uint32, 1, func(s *BatterySnapshot, v float64) { s.FaultCode = uint32(v) }},
	{"charge_energy", 67, Int32, 10, func(s *BatterySnapshot, v float64) { s.ChargeEnergyKWh = v }},
	{"discharge_energy", 71, Int32, 10, func(s *BatterySnapshot, v float64) { s.DischargeEnergyKWh = v }},
	{"charge_from_grid", 75, Int32, 10, func(s *BatterySnapshot, v float64) { s.ChargeFromGridKWh = v }},
}

// The block ends with register 47 at offset 97; a 32-bit value there would
// run into the CRC, so nothing is decoded past the fault code.
var inverterFields = []Field[InverterSnapshot]{
	{"voltage_l1", 3, Int16, 10, func(s *InverterSnapshot, v float64) { s.VoltageL1 = v }},
	{"voltage_l2", 5, Int16, 10, func(s *InverterSnapshot, v float64) { s.VoltageL2 = v }},
	{"voltage_l3", 7, Int16, 10, func(s *InverterSnapshot, v float64) { s.VoltageL3 = v }},
	{"current_l1", 9, Int16, 10, func(s *InverterSnapshot, v float64) { s.CurrentL1 = v }},
	{"current_l2", 11, Int16, 10, func(s *InverterSnapshot, v float64) { s.CurrentL2 = v }},
	{"current_l3", 13, Int16, 10, func(s *InverterSnapshot, v float64) { s.CurrentL3 = v }},
	{"power_l1", 15, Int32, 1, func(s *InverterSnapshot, v float64) { s.PowerL1W = v }},
	{"power_l2", 19, Int32, 1, func(s *InverterSnapshot, v float64) { s.PowerL2W = v }},
	{"power_l3", 23, Int32, 1, func(s *InverterSnapshot, v float64) { s.PowerL3W = v }},
	{"total_power", 27, Int32, 1, func(s *InverterSnapshot, v float64) { s.TotalPowerW = v }},
	{"backup_voltage_l1", 31, Int16, 10, func(s *InverterSnapshot, v float64) { s.BackupVoltageL1 = v }},
	{"backup_voltage_l2", 33, Int16, 10, func(s *InverterSnapshot, v float64) { s.BackupVoltageL2 = v }},
	{"backup_voltage_l3", 35, Int16, 10, func(s *InverterSnapshot, v float64) { s.BackupVoltageL3 = v }},
	{"backup_current_l1", 37, Int16, 10, func(s *InverterSnapshot, v float64) { s.BackupCurrentL1 = v }},
	{"backup_current_l2", 39, Int16, 10, func(s *InverterSnapshot, v float64) { s.BackupCurrentL2 = v }},
	{"backup_current_l3", 41, Int16, 10, func(s *InverterSnapshot, v float64) { s.BackupCurrentL3 = v }},
	{"backup_power_l1", 43, Int32, 1, func(s *InverterSnapshot, v float64) { s.BackupPowerL1W = v }},
	{"backup_power_l2", 47, Int32, 1, func(s *InverterSnapshot, v float64) { s.BackupPowerL2W = v }},
	{"backup_power_l3", 51, Int32, 1, func(s *InverterSnapshot, v float64) { s.BackupPowerL3W = v }},
	{"backup_total_power", 55, Int32, 1, func(s *InverterSnapshot, v float64) { s.BackupTotalPowerW = v }},
	{"grid_frequency", 59, Int16, 100, func(s *InverterSnapshot, v float64) { s.GridFrequencyHz = v }},
	{"pv1_voltage", 61, Int16, 10, func(s *InverterSnapshot, v float64) { s.PV1Voltage = v }},
	{"pv1_current", 63, Int16, 10, func(s *InverterSnapshot, v float64) { s.PV1Current = v }},
	{"pv1_power", 65, Int32, 1, func(s *InverterSnapshot, v float64) { s.PV1PowerW = v }},
	{"pv2_voltage", 69, Int16, 10, func(s *InverterSnapshot, v float64) { s.PV2Voltage = v }},
	{"pv2_current", 71, Int16, 10, func(s *InverterSnapshot, v float64) { s.PV2Current = v }},
	{"pv2_power", 73, Int32, 1, func(s *InverterSnapshot, v float64) { s.PV2PowerW = v }},
	{"pv3_voltage", 77, Int16, 10, func(s *InverterSnapshot, v float64) { s.PV3Voltage = v }},
	{"pv3_current", 79, Int16, 10, func(s *InverterSnapshot, v float64) { s.PV3Current = v }},
	{"pv3_power", 81, Int32, 1, func(s *InverterSnapshot, v float64) { s.PV3PowerW = v }},
	{"temperature", 85, Int16, 10, func(s *InverterSnapshot, v float64) { s.TemperatureC = v }},
	{"warning", 89, Uint32, 1, func(s *InverterSnapshot, v float64) { s.WarningCode = uint32(v) }},
	{"fault", 93, Uint32, 1, func(s *InverterSnapshot, v float64) { s.FaultCode = uint32(v) }},
}
