// Package repository define el contrato de almacenamiento del sistema:
// los tipos canónicos de entidad (Pool, User, Client, Group, MFADevice)
// y las interfaces que todo backend debe implementar.
//
// Reglas del contrato:
//
//   - Toda entidad hija lleva su PoolID; ninguna operación puede leer o
//     escribir fuera del pool indicado por el caller.
//   - Los timestamps (CreatedAt/UpdatedAt) los fija siempre el backend,
//     nunca el caller.
//   - Los updates parciales se expresan con structs de campos opcionales
//     (punteros), nunca con mapas genéricos: el conjunto de campos
//     mutables es enumerable y se verifica estáticamente por backend.
//   - List usa paginación por keyset con token de continuación opaco:
//     el token es no-vacío si y solo si quedan más resultados.
package repository
