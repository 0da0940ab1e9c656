package domain

// RoomName identifies a logical fan-out group. Three kinds exist: role rooms
// (one per role class), thread rooms (one per chat thread) and personal rooms
// (one per user, used for addressed signaling).
type RoomName string

func RoleRoom(r Role) RoomName {
	return RoomName("role:" + string(r))
}

func ThreadRoom(id ThreadID) RoomName {
	return RoomName("thread:" + string(id))
}

func PersonalRoom(id UserID) RoomName {
	return RoomName("user:" + string(id))
}
