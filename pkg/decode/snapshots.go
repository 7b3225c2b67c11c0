package decode

import "storion-modbus-bridge/pkg/frame"

// Snapshot is a decoded reading. Values are never mutated after decoding.
type Snapshot interface {
	Kind() frame.Kind
}

// MeterSnapshot holds the grid and PV meter readings
type MeterSnapshot struct {
	PhaseAPowerW      float64 `json:"phase_a_power_w"`
	PhaseBPowerW      float64 `json:"phase_b_power_w"`
	PhaseCPowerW      float64 `json:"phase_c_power_w"`
	ActivePowerW      float64 `json:"active_power_w"`
	FeedInEnergyKWh   float64 `json:"feed_in_energy_kwh"`
	ConsumedEnergyKWh float64 `json:"consumed_energy_kwh"`
	PVPowerW          float64 `json:"pv_power_w"`
	PVFeedEnergyKWh   float64 `json:"pv_feed_energy_kwh"`
}

func (MeterSnapshot) Kind() frame.Kind { return frame.KindMeter }

// BatterySnapshot holds the battery management unit readings
type BatterySnapshot struct {
	Voltage             float64 `json:"voltage"`
	Current             float64 `json:"current"`
	StateOfChargePct    float64 `json:"soc"`
	Status              int     `json:"status"`
	RelayStatus         int     `json:"relay_status"`
	CellVoltageMin      float64 `json:"cell_voltage_min"`
	CellVoltageMax      float64 `json:"cell_voltage_max"`
	CellTempMin         float64 `json:"cell_temp_min"`
	CellTempMax         float64 `json:"cell_temp_max"`
	ChargeCurrentMax    float64 `json:"charge_current_max"`
	DischargeCurrentMax float64 `json:"discharge_current_max"`
	ChargeCutoffV       float64 `json:"charge_cutoff_v"`
	DischargeCutoffV    float64 `json:"discharge_cutoff_v"`
	BatteryCount        int     `json:"battery_count"`
	CapacityKWh         float64 `json:"capacity_kwh"`
	StateOfHealthPct    float64 `json:"soh"`
	WarningCode         uint32  `json:"warning"`
	FaultCode           uint32  `json:"fault"`
	ChargeEnergyKWh     float64 `json:"charge_energy_kwh"`
	DischargeEnergyKWh  float64 `json:"discharge_energy_kwh"`
	ChargeFromGridKWh   float64 `json:"charge_from_grid_kwh"`
}

func (BatterySnapshot) Kind() frame.Kind { return frame.KindBattery }

// InverterSnapshot holds the hybrid inverter readings
type InverterSnapshot struct {
	VoltageL1         float64 `json:"voltage_l1"`
	VoltageL2         float64 `json:"voltage_l2"`
	VoltageL3         float64 `json:"voltage_l3"`
	CurrentL1         float64 `json:"current_l1"`
	CurrentL2         float64 `json:"current_l2"`
	CurrentL3         float64 `json:"current_l3"`
	PowerL1W          float64 `json:"power_l1_w"`
	PowerL2W          float64 `json:"power_l2_w"`
	PowerL3W          float64 `json:"power_l3_w"`
	TotalPowerW       float64 `json:"total_power_w"`
	BackupVoltageL1   float64 `json:"backup_voltage_l1"`
	BackupVoltageL2   float64 `json:"backup_voltage_l2"`
	BackupVoltageL3   float64 `json:"backup_voltage_l3"`
	BackupCurrentL1   float64 `json:"backup_current_l1"`
	BackupCurrentL2   float64 `json:"backup_current_l2"`
	BackupCurrentL3   float64 `json:"backup_current_l3"`
	BackupPowerL1W    float64 `json:"backup_power_l1_w"`
	BackupPowerL2W    float64 `json:"backup_power_l2_w"`
	BackupPowerL3W    float64 `json:"backup_power_l3_w"`
	BackupTotalPowerW float64 `json:"backup_total_power_w"`
	GridFrequencyHz   float64 `json:"grid_frequency_hz"`
	PV1Voltage        float64 `json:"pv1_voltage"`
	PV1Current        float64 `json:"pv1_current"`
	PV1PowerW         float64 `json:"pv1_power_w"`
	PV2Voltage        float64 `json:"pv2_voltage"`
	PV2Current        float64 `json:"pv2_current"`
	PV2PowerW         float64 `json:"pv2_power_w"`
	PV3Voltage        float64 `json:"pv3_voltage"`
	PV3Current        float64 `json:"pv3_current"`
	PV3PowerW         float64 `json:"pv3_power_w"`
	TemperatureC      float64 `json:"temperature"`
	WarningCode       uint32  `json:"warning"`
	FaultCode         uint32  `json:"fault"`
}

func (InverterSnapshot) Kind() frame.Kind { return frame.KindInverter }
