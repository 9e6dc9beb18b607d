package models

// Patient is the slice of the externally owned patient record the queue
// core reads at entry-creation time.
type Patient struct {
	PatientID    string `json:"patient_id"`
	DepartmentID string `json:"department_id"`
	Emergency    bool   `json:"emergency"`
}

// Provider is a clinician with an assigned examination room. The room
// allocator only cares about the rooms a department has per stage, in
// directory listing order.
type Provider struct {
	ProviderID   string `json:"provider_id"`
	Name         string `json:"name"`
	DepartmentID string `json:"department_id"`
	Stage        string `json:"stage"`
	Room         string `json:"room"`
}
